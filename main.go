package main

import "github.com/manifest-network/trampoline/cmd/trampoline"

func main() {
	trampoline.Execute()
}
