package main

import "github.com/sendstuff/campaign-gateway/cmd"

func main() {
	cmd.Execute()
}
