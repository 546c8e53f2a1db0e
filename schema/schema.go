// Package schema has the models, constants and policies shared by every part of emission.
package schema
