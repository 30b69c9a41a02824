// Package registry implements the process-wide module store (spec.md §4.5):
// load_module/unload_module and the find_class/find_method/find_field
// family, bridging moduleio's on-disk tables to live objsys.Class/Method/
// Field records addressed by a global (module_id, local_id) pair.
package registry
