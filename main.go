package main

import "github.com/ValentinKolb/ahnlich-go/cmd"

func main() {
	cmd.Execute()
}
