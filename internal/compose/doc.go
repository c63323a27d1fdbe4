// Package compose renders brace templates such as
// "{time:%Y%m%d_%H%M}_{platform_name}_{areaname}.png" against a metadata map.
//
// Fields are written as {key} or {key:spec}. Time values format their spec
// with strftime directives, numbers use printf verbs, and "{{" / "}}" escape
// literal braces. Output filenames, output directories, and notification
// topics are all produced here.
package compose
