package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"painel/internal/auth"
)

// Prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
//
//	hashpw 's3nha'
//	echo 's3nha' | hashpw
func main() {
	var password string
	switch {
	case len(os.Args) > 1:
		password = os.Args[1]
	default:
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		log.Fatalf("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
