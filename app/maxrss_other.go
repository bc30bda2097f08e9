//go:build unix && !darwin

package app

// ru_maxrss is reported in kilobytes
const maxrssUnit = 1024
