// Package noopcheck reports PHP functions whose unoptimized opcodes hide a
// constant return that the opcache optimizer can prove.
package noopcheck

// Version is the noopcheck release version.
const Version = "0.3.0"
