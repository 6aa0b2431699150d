package types

import (
	"io/ioutil"
	"log"
)

// Writer is the operator-facing line sink. *log.Logger satisfies it.
type Writer interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// Discard is a Writer that drops everything.
var Discard Writer = log.New(ioutil.Discard, "", 0)
