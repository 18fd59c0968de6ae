package main

import "github.com/nzvengeance/launch-shelf/internal/cli"

func main() {
	cli.Execute()
}
