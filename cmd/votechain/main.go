package main

import "github.com/Xausdorf/votechain/cmd/votechain/cmd"

func main() {
	cmd.Execute()
}
