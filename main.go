package main

import "github.com/atikulmunna/moor/internal/cmd"

func main() {
	cmd.Execute()
}
