// Package document turns a named view into PDF bytes.
//
// It owns the request/settings model and the fixed render sequence
// (view -> HTML -> absolute asset URLs -> pipeline -> response). The view
// engine and the PDF engine are reached through the ViewRenderer and Pipeline
// interfaces; this package has no transport or browser dependencies.
package document
