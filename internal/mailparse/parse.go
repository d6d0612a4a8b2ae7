// Package mailparse 将原始 RFC822 邮件解析为转发用的信封。
// 只提取转发需要的字段：发件人、主题、收件地址的 local-part
// 与首个纯文本正文，所有解码失败都以替换或回退处理，绝不中断。
package mailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

// Parse 解析邮件并提取转发信封。
//
// 正文策略：多部分邮件取首个 text/plain 部分（递归进入嵌套
// multipart），非多部分邮件取整个载荷；正文按 bodyLimit 截断。
// 无法解析顶层结构时返回错误，调用方跳过该邮件。
func Parse(raw []byte, bodyLimit int) (*domain.InboundEnvelope, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	env := &domain.InboundEnvelope{
		From:        headerOrDefault(msg.Header.Get("From"), "Unknown"),
		Subject:     headerOrDefault(msg.Header.Get("Subject"), "(no subject)"),
		ToLocalPart: extractLocalPart(msg.Header.Get("To")),
	}

	body := extractBody(msg)
	env.Body = truncate(body, bodyLimit)
	return env, nil
}

// extractLocalPart 取收件地址 @ 之前的部分并统一小写。
// 优先按地址格式解析（处理 "Name <a@b>" 形式），失败时退回原始切分。
func extractLocalPart(to string) string {
	addr := to
	if parsed, err := mail.ParseAddress(to); err == nil {
		addr = parsed.Address
	}
	local, _, _ := strings.Cut(addr, "@")
	return strings.ToLower(strings.TrimSpace(local))
}

// extractBody 按正文策略提取文本，任何失败都降级为已得到的内容。
func extractBody(msg *mail.Message) string {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// 没有 Content-Type 或解析失败，当作纯文本处理
		body, _ := io.ReadAll(msg.Body)
		return string(body)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return ""
		}
		return firstPlainText(multipart.NewReader(msg.Body, boundary))
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return ""
	}
	return body
}

// firstPlainText 在多部分邮件中寻找首个 text/plain 部分。
func firstPlainText(mr *multipart.Reader) string {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		// 附件部分跳过
		if disposition := part.Header.Get("Content-Disposition"); disposition != "" {
			dispType, _, _ := mime.ParseMediaType(disposition)
			if dispType == "attachment" {
				continue
			}
		}

		// 递归进入嵌套的 multipart（multipart/alternative 等）
		if strings.HasPrefix(mediaType, "multipart/") {
			if boundary := params["boundary"]; boundary != "" {
				if text := firstPlainText(multipart.NewReader(part, boundary)); text != "" {
					return text
				}
			}
			continue
		}

		if strings.HasPrefix(mediaType, "text/plain") {
			body, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
			if err != nil {
				continue
			}
			return body
		}
	}
}

// decodeBody 根据传输编码与字符集解码邮件体。
func decodeBody(reader io.Reader, transferEncoding string, charset string) (string, error) {
	transferEncoding = strings.ToLower(strings.TrimSpace(transferEncoding))

	var decoded io.Reader
	switch transferEncoding {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, reader)
	case "quoted-printable":
		decoded = quotedprintable.NewReader(reader)
	default:
		// 7bit/8bit/binary 或未知编码，直接读取
		decoded = reader
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}

	// 字符集转换，失败时保留原始字节
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc := charsetEncoding(charset); enc != nil {
			converted, _, err := transform.Bytes(enc.NewDecoder(), body)
			if err == nil {
				body = converted
			}
		}
	}

	return strings.ToValidUTF8(string(body), "�"), nil
}

// charsetEncoding 根据字符集名称返回编码器
func charsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "shift_jis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	default:
		return nil
	}
}

// headerOrDefault 解码 MIME 编码的头部，缺失时返回默认值。
func headerOrDefault(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	decoder := &mime.WordDecoder{
		CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
			if enc := charsetEncoding(strings.ToLower(charset)); enc != nil {
				return transform.NewReader(input, enc.NewDecoder()), nil
			}
			return input, nil
		},
	}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// truncate 按符文安全地截断到 limit 个字符。
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
