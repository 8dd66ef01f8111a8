package main

import "github.com/gorakshaai/goraksha/pkg/cli"

func main() {
	cli.Execute()
}
