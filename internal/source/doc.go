// Package source merges the source index: the raw fields needed to
// rehydrate a document.
//
// Fields are split into groups by SourceGroupConfig. Each group is a
// variable-length column in source/group_<id>, and the meta column in
// source/meta records the field order of every document. A merge handles
// one group, or the meta column when its group id equals the group count.
package source
