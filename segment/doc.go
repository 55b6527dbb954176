// Package segment describes the sealed source segments and the target
// segment layout of a merge.
//
// A segment directory looks like:
//
//	segment_info
//	deletionmap
//	attribute/<name>/{data,offset,data_info,null,patch...}
//	attribute/<name>/slice_<i>/...
//	source/group_<id>/{data,offset}
//	source/meta/{data,offset}
//	summary/{data,offset}
//	summary/<group>/{data,offset}
package segment
