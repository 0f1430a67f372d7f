/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"log"
	"strings"
	"time"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// drainErrors prints handler errors until errs is closed.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
	}
}

// newErrorPage is a whole-page link back to the home page of this server.
func newErrorPage(cfg *Config, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf(`<body><a href="%s/">%s</a></body></html>`, cfg.prefix, html.EscapeString(body)))

	return htmlBody.String()
}
