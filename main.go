/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "qualichat/cmd"

func main() {
	cmd.Execute()
}
