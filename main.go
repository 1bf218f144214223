package main

import "github.com/agentic-research/taxotree/cmd"

func main() {
	cmd.Execute()
}
