package main

import "github.com/assetpipe/assetctl/cmd"

func main() {
	cmd.Execute()
}
