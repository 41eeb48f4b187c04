package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"xdao.co/typeuuid/compose"
	"xdao.co/typeuuid/identity"
)

const (
	seedS = "12345678-1234-1234-1234-123456789abc"
	idP   = "a0b1c2d3-e4f5-4607-8819-2a3b4c5d6e7f"
	idQ   = "0f0e0d0c-0b0a-0908-0706-050403020100"
	idMax = "ffffffff-ffff-ffff-ffff-ffffffffffff"
	idNil = "00000000-0000-0000-0000-000000000000"
)

type vector struct {
	name   string
	seed   string
	params []string
}

var vectors = []vector{
	{"nil-empty", idNil, nil},
	{"seed-empty", seedS, nil},
	{"one", seedS, []string{idP}},
	{"two", seedS, []string{idP, idQ}},
	{"two-swapped", seedS, []string{idQ, idP}},
	{"wrap", seedS, []string{idQ, idMax}},
	{"nil-seed-three", idNil, []string{idP, idQ, seedS}},
}

func main() {
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	var buf bytes.Buffer
	buf.WriteString("# name seed params(comma-separated, \"-\" for none) expected\n")
	for _, v := range vectors {
		params := make([]identity.Identity, len(v.params))
		for i, p := range v.params {
			params[i] = identity.MustParse(p)
		}
		got := compose.NewInput(identity.MustParse(v.seed), params...).Compose()
		list := "-"
		if len(v.params) > 0 {
			list = strings.Join(v.params, ",")
		}
		fmt.Fprintf(&buf, "%s %s %s %s\n", v.name, v.seed, list, got)
	}

	if *out == "" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
