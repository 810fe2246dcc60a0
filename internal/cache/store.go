package cache

import "sync"

// ExportPathMap 保存导出目录名和完整导出路径的映射关系
// key: 导出路径最后一级目录名, 与内核事件中的 path 一致
// value: 完整导出路径
var ExportPathMap *sync.Map

// NodeAddrMap 保存节点 IP 和节点名的映射关系
// key: InternalIP
// value: node name
var NodeAddrMap *sync.Map

func init() {
	ExportPathMap = new(sync.Map)
	NodeAddrMap = new(sync.Map)
}
