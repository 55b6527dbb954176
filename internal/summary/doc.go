// Package summary merges summary groups: the stored fields returned with
// search hits. Each group is a variable-length column; the default group
// lives at the top of the summary directory.
package summary
