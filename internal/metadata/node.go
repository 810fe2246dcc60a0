package metadata

import (
	v1 "k8s.io/api/core/v1"

	"github.com/cen-ngc5139/nfsd-trace/internal/cache"
)

// nodeAddrs returns the addresses of node that a client may connect from.
func nodeAddrs(node *v1.Node) []string {
	var addrs []string
	for _, addr := range node.Status.Addresses {
		if addr.Type == v1.NodeInternalIP || addr.Type == v1.NodeExternalIP {
			addrs = append(addrs, addr.Address)
		}
	}
	return addrs
}

// StoreNode 保存节点地址到节点名的映射, 并清理该节点已不再使用的地址
func StoreNode(node *v1.Node) {
	keep := make(map[string]struct{})
	for _, addr := range nodeAddrs(node) {
		keep[addr] = struct{}{}
		cache.NodeAddrMap.Store(addr, node.Name)
	}

	cache.NodeAddrMap.Range(func(key, value interface{}) bool {
		if value.(string) != node.Name {
			return true
		}
		if _, ok := keep[key.(string)]; !ok {
			cache.NodeAddrMap.Delete(key)
		}
		return true
	})
}

// DeleteNode 删除节点的所有地址映射
func DeleteNode(name string) {
	cache.NodeAddrMap.Range(func(key, value interface{}) bool {
		if value.(string) == name {
			cache.NodeAddrMap.Delete(key)
		}
		return true
	})
}

// LookupNode returns the node a client address belongs to.
func LookupNode(addr string) (string, bool) {
	v, ok := cache.NodeAddrMap.Load(addr)
	if !ok {
		return "", false
	}
	return v.(string), true
}
