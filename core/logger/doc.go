// Package logger is a standardized event logging framework for sandsh. Every
// evaluated command line becomes one JSON object on its own line.
package logger
