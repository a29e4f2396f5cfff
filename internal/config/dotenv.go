package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv 把 KEY=VALUE 形式的文件注入进程环境，已存在的变量不覆盖。文件不存在时静默返回。
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		key := strings.TrimSpace(k)
		if !ok || key == "" {
			continue
		}
		val := strings.TrimSpace(v)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		// 多账号串常写成字面量 \n
		val = strings.ReplaceAll(val, `\n`, "\n")
		if val == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, val)
		}
	}
	return scanner.Err()
}
