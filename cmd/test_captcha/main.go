package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"autotask/internal/captcha"
	"autotask/internal/config"
)

// 用法：go run ./cmd/test_captcha -image captcha.png [-url http://ocr]
// 未指定 -url 时读取 DDDD_OCR_URL（支持 .env）。
func main() {
	imagePath := flag.String("image", "", "captcha image file (png/jpg) or a text file holding a data URI")
	ocrURL := flag.String("url", "", "OCR endpoint, defaults to $DDDD_OCR_URL")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Printf("读取 %s 失败: %v\n", *envFile, err)
	}
	if *ocrURL == "" {
		*ocrURL = os.Getenv("DDDD_OCR_URL")
	}
	if *imagePath == "" || *ocrURL == "" {
		fmt.Println("错误: 需要 -image 和 OCR 地址（-url 或 DDDD_OCR_URL）")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Printf("读取图片失败: %v\n", err)
		os.Exit(1)
	}
	if len(raw) > 5 && string(raw[:5]) == "data:" {
		if raw, err = captcha.DecodeDataURI(string(raw)); err != nil {
			fmt.Printf("解码 data URI 失败: %v\n", err)
			os.Exit(1)
		}
	}

	client := captcha.NewOCRClient(*ocrURL, 15*time.Second)
	fmt.Printf("图片 %d 字节，开始识别...\n", len(raw))
	start := time.Now()
	text, err := client.Solve(context.Background(), raw)
	if err != nil {
		fmt.Printf("识别失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("识别结果: %s（耗时 %s）\n", text, time.Since(start).Round(time.Millisecond))
}
