// Package insert abstracts typing text into the focused application. The
// default implementation shells out to a platform typing tool.
package insert
