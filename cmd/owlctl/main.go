package main

import "ferrousowl/internal/cli"

func main() {
	cli.Execute()
}
