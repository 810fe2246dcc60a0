package metadata

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cen-ngc5139/nfsd-trace/internal/cache"
	"github.com/cen-ngc5139/nfsd-trace/internal/log"
)

// Export is one line of an export table.
type Export struct {
	Path    string
	Clients string
}

// Name is the final path component, which is what the kernel reports as
// the export's dentry name.
func (e Export) Name() string {
	return filepath.Base(e.Path)
}

// ParseExports reads /var/lib/nfs/etab or /proc/fs/nfsd/exports. Both put
// the export path in the first field.
func ParseExports(filePath string) ([]Export, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseExports(file)
}

func parseExports(r io.Reader) ([]Export, error) {
	var exports []Export
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		export := Export{Path: unescapeOctal(fields[0])}
		if len(fields) > 1 {
			export.Clients = strings.Join(fields[1:], " ")
		}
		exports = append(exports, export)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return exports, nil
}

// unescapeOctal 还原 \040 这类八进制转义
func unescapeOctal(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// UpdateExportCache 用最新的导出表替换缓存内容
func UpdateExportCache(exports []Export) {
	desired := make(map[string]string, len(exports))
	for _, export := range exports {
		name := export.Name()
		if prev, ok := desired[name]; ok {
			// 同名导出目录无法区分, 保留先出现的一个
			if prev != export.Path {
				log.Warningf("导出目录 %s 与 %s 同名, 忽略", export.Path, prev)
			}
			continue
		}
		desired[name] = export.Path
	}

	for name, path := range desired {
		cache.ExportPathMap.Store(name, path)
	}

	// 删除cache中不存在的导出信息
	cache.ExportPathMap.Range(func(key, value interface{}) bool {
		if _, ok := desired[key.(string)]; !ok {
			cache.ExportPathMap.Delete(key)
		}
		return true
	})
}

// LookupExportPath maps an export name from a record to its full path.
func LookupExportPath(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v, ok := cache.ExportPathMap.Load(name)
	if !ok {
		return "", false
	}
	return v.(string), true
}
