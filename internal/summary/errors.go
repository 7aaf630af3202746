package summary

import (
	"errors"
	"fmt"

	"github.com/lazypower/resonance/internal/model"
)

var (
	errNoClient = fmt.Errorf("%w: no text-generation provider configured", model.ErrExternal)
	errEmpty    = errors.New("empty generation")
)
