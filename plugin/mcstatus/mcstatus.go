// Package mcstatus Minecraft服务器状态查询
package mcstatus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FloatTech/floatbox/web"
	"github.com/FloatTech/ttl"
	ctrl "github.com/FloatTech/zbpctrl"
	control "github.com/FloatTech/zbputils/control"
	"github.com/FloatTech/zbputils/ctxext"
	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/chat"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

const mcsrvstatAPI = "https://api.mcsrvstat.us/2/"

var (
	engine = control.AutoRegister(&ctrl.Options[*zero.Ctx]{
		DisableOnDefault: false,
		Brief:            "MC服务器查询",
		Help:             "- mcs [服务器地址]",
	})
	// 同一地址一分钟内不重复查询
	cache = ttl.NewCache[string, string](time.Minute)
)

func init() {
	engine.OnPrefix("mcs").SetBlock(true).Limit(ctxext.LimitByUser).Handle(func(ctx *zero.Ctx) {
		addr := strings.TrimSpace(strings.TrimPrefix(ctx.ExtractPlainText(), "mcs"))
		if addr == "" {
			ctx.SendChain(message.Text("查 Minecraft 服务器。格式: mcs [服务器地址]"))
			return
		}
		if text := cache.Get(addr); text != "" {
			ctx.SendChain(message.Text(text))
			return
		}
		text, err := queryStatus(addr)
		if err != nil {
			ctx.SendChain(message.Text("查询失败: ", err))
			return
		}
		cache.Set(addr, text)
		ctx.SendChain(message.Text(text))
	})
}

// queryStatus 先直连SLP，不可达时退回HTTP查询接口
func queryStatus(addr string) (string, error) {
	text, err := pingDirect(addr)
	if err == nil {
		return text, nil
	}
	logrus.Debugln("[mcstatus] 直连", addr, "失败, 改用查询接口:", err)
	data, err := web.GetData(mcsrvstatAPI + addr)
	if err != nil {
		return "", err
	}
	return parseAPIStatus(data, addr)
}

func pingDirect(addr string) (string, error) {
	data, delay, err := bot.PingAndList(addr)
	if err != nil {
		return "", err
	}
	s := gjson.ParseBytes(data)
	var motd chat.Message
	_ = motd.UnmarshalJSON([]byte(s.Get("description").Raw))
	names := make([]string, 0, 8)
	for _, p := range s.Get("players.sample").Array() {
		names = append(names, p.Get("name").String())
	}
	text := formatStatus(true, addr,
		s.Get("version.name").String(),
		strings.TrimSpace(motd.ClearString()),
		fmt.Sprintf("%d/%d", s.Get("players.online").Int(), s.Get("players.max").Int()),
		names,
	)
	return text + fmt.Sprintf("\n延迟: %dms", delay.Milliseconds()), nil
}

func parseAPIStatus(data []byte, addr string) (string, error) {
	s := gjson.ParseBytes(data)
	if e := s.Get("error"); e.Exists() {
		return "", errors.New(e.String())
	}
	motdLines := make([]string, 0, 4)
	for _, l := range s.Get("motd.clean").Array() {
		if t := strings.TrimSpace(l.String()); t != "" {
			motdLines = append(motdLines, t)
		}
	}
	motd := strings.Join(motdLines, "\n")
	if motd == "" {
		motd = "查询失败"
	}
	version := "查询失败"
	if v := s.Get("version"); v.Exists() {
		version = v.String()
	}
	players := "查询失败"
	if p := s.Get("players"); p.Exists() {
		players = fmt.Sprintf("%d/%d", p.Get("online").Int(), p.Get("max").Int())
	}
	names := make([]string, 0, 8)
	for _, n := range s.Get("players.list").Array() {
		names = append(names, n.String())
	}
	return formatStatus(s.Get("online").Bool(), addr, version, motd, players, names), nil
}

func formatStatus(online bool, addr, version, motd, players string, names []string) string {
	status := "🔴"
	if online {
		status = "🟢"
	}
	nameList := "无玩家在线"
	if len(names) > 0 {
		nameList = strings.Join(names, "\n")
	}
	return fmt.Sprintf(
		"【查询结果】\n状态: %s\n服务器IP: %s\n版本: %s\nMOTD: %s\n玩家人数: %s\n在线玩家: \n%s",
		status, addr, version, motd, players, nameList,
	)
}
