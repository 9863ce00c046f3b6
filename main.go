package main

import "github.com/ValentinKolb/amqpio/cmd"

func main() {
	cmd.Execute()
}
