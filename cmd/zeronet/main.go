package main

import "github.com/medrex/zeronet/internal/cli"

func main() {
	cli.Execute()
}
