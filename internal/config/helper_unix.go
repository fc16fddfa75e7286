//go:build !windows

package config

func helperName() string { return "docmirror" }
