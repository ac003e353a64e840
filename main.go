package main

import "github.com/rami3l/loxvm/cmd"

func main() {
	cmd.App().Execute()
}
