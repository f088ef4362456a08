package cache

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Params binds template placeholder names to values. Names match the
// parameter names of the API-client method the template is attached to.
type Params map[string]any

// Format interpolates a key template such as
// "service-{service_id}-template-{template_id}" using params.
func Format(template string, params Params) (string, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", errors.Errorf("[cache.Format] unbalanced braces in template %q", template)
		}
		name := rest[open+1 : open+closing]
		value, ok := params[name]
		if !ok {
			return "", errors.Errorf("[cache.Format] template %q references unknown parameter %q", template, name)
		}
		b.WriteString(rest[:open])
		b.WriteString(fmt.Sprint(value))
		rest = rest[open+closing+1:]
	}
}

// MustFormat is Format for compile-time-constant templates; a missing
// parameter is a programmer error.
func MustFormat(template string, params Params) string {
	key, err := Format(template, params)
	if err != nil {
		panic(err)
	}
	return key
}
