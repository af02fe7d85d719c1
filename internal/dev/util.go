package dev

import (
	"encoding/json"
	"io"
	"log"

	"github.com/ZilDuck/zerosum-market-resolver/internal/config"
)

// Write prints el as indented JSON.
func Write(w io.Writer, el interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(el)
}

func Dump(el interface{}) {
	if config.Get().Debug {
		elJson, _ := json.MarshalIndent(el, "", "  ")
		log.Println(string(elJson))
	}
}
