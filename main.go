package main

import "github.com/ValentinKolb/dCB/cmd"

func main() {
	cmd.Execute()
}
