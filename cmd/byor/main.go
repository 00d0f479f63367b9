package main

import "github.com/jasonbot/be-your-own-rag/internal/cli"

func main() {
	cli.Execute()
}
