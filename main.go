package main

import "github.com/frahmantamala/trading-panel/cmd"

func main() {
	cmd.Execute()
}
