package main

import "github.com/skillsphere/meetings/internal/cli"

func main() {
	cli.Execute()
}
