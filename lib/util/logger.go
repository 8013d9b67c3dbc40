/* logger.go: logrus formatters for console and keyword runner output
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package util

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LineFormatter writes one colon separated line per entry:
//   15:04:05.000:module:LEVEL:message
// Fields, if any, are appended as key=value pairs.
type LineFormatter struct {
	Module        string
	DisablePrefix bool
}

func (f *LineFormatter) Format(e *log.Entry) ([]byte, error) {
	var s []string
	if !f.DisablePrefix {
		s = append(s, e.Time.Format("15:04:05.000"))
	}
	s = append(s, f.Module, strings.ToUpper(e.Level.String()), strings.TrimSpace(e.Message)+fields(e))
	return []byte(strings.Join(s, ":") + "\n"), nil
}

func fields(e *log.Entry) string {
	if len(e.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	return b.String()
}

// KeywordFormatter renders entries the way keyword-driven test runners read
// log lines from a library's stdout: "*LEVEL* message".
type KeywordFormatter struct{}

var keywordLevels = map[log.Level]string{
	log.PanicLevel: "ERROR",
	log.FatalLevel: "ERROR",
	log.ErrorLevel: "ERROR",
	log.WarnLevel:  "WARN",
	log.InfoLevel:  "INFO",
	log.DebugLevel: "DEBUG",
	log.TraceLevel: "TRACE",
}

func (KeywordFormatter) Format(e *log.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("*%s* %s%s\n", keywordLevels[e.Level], strings.TrimSpace(e.Message), fields(e))), nil
}
