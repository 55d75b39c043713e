package main

import "github.com/waffletower/InvokeAI/internal/cli"

func main() {
	cli.Execute()
}
