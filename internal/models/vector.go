package models

// Vector is a dense embedding
type Vector []float32
