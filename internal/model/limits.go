package model

const (
	MinLimit     = 1
	MaxLimit     = 1440
	DefaultLimit = 60
)
