package main

import "github.com/ulikoehler/YakDB-sub001/cmd"

func main() {
	cmd.Execute()
}
