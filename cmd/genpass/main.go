package main

import (
	"fmt"

	"github.com/tingzhh2025/aisecurityvision/internal/auth"
)

func main() {
	hash, err := auth.HashPassword("password")
	if err != nil {
		panic(err)
	}
	fmt.Println(hash)
}
