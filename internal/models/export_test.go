package models

var (
	SchemeOf         = schemeOf
	BaseName         = baseName
	ParseGCSLocation = parseGCSLocation
)
