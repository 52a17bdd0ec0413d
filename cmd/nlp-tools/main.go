package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/logger"
	"github.com/dvloznov/ledger-assistant/internal/nlp"
)

func main() {
	log := logger.New()

	op := flag.String("op", "tokenize", "Operation: tokenize, stopwords, lemmatize or entities")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read stdin")
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		log.Fatal().Msg("Usage: nlp-tools -op OPERATION TEXT (or pipe text on stdin)")
	}

	p := nlp.New()

	var (
		result any
		err    error
	)
	switch *op {
	case "tokenize":
		result, err = p.Tokenize(text)
	case "stopwords":
		result, err = p.RemoveStopwords(text)
	case "lemmatize":
		result, err = p.Lemmatize(text)
	case "entities":
		result, err = p.ExtractEntities(text)
	default:
		log.Fatal().Str("op", *op).Msg("Unknown operation")
	}
	if err != nil {
		log.Fatal().Err(err).Str("op", *op).Msg("Operation failed")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
