// Package epicfree EPIC喜加一
package epicfree

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/FloatTech/floatbox/web"
	ctrl "github.com/FloatTech/zbpctrl"
	control "github.com/FloatTech/zbputils/control"
	"github.com/FloatTech/zbputils/ctxext"
	"github.com/fumiama/cron"
	"github.com/sirupsen/logrus"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

const api = "https://store-site-backend-static-ipv4.ak.epicgames.com/freeGamesPromotions"

type promotionResponse struct {
	Data struct {
		Catalog struct {
			SearchStore struct {
				Elements []gameElement `json:"elements"`
			} `json:"searchStore"`
		} `json:"Catalog"`
	} `json:"data"`
}

type gameElement struct {
	Title string `json:"title"`
	Price struct {
		TotalPrice struct {
			FmtPrice struct {
				OriginalPrice string `json:"originalPrice"`
				DiscountPrice string `json:"discountPrice"`
			} `json:"fmtPrice"`
		} `json:"totalPrice"`
	} `json:"price"`
	Promotions *struct {
		PromotionalOffers         []offerGroup `json:"promotionalOffers"`
		UpcomingPromotionalOffers []offerGroup `json:"upcomingPromotionalOffers"`
	} `json:"promotions"`
}

type offerGroup struct {
	PromotionalOffers []promoOffer `json:"promotionalOffers"`
}

type promoOffer struct {
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	DiscountSetting struct {
		DiscountPercentage float64 `json:"discountPercentage"`
	} `json:"discountSetting"`
}

var engine = control.AutoRegister(&ctrl.Options[*zero.Ctx]{
	DisableOnDefault: false,
	Brief:            "EPIC喜加一",
	Help: "- 喜加一\n" +
		"- 订阅喜加一 (群管理)\n" +
		"- 退订喜加一 (群管理)",
	PrivateDataFolder: "epicfree",
})

func init() {
	engine.OnFullMatch("喜加一").SetBlock(true).Limit(ctxext.LimitByUser).Handle(func(ctx *zero.Ctx) {
		digest, err := fetchDigest()
		if err != nil {
			ctx.SendChain(message.Text("请求失败: ", err))
			return
		}
		ctx.SendChain(message.Text(digest))
	})
	engine.OnFullMatch("订阅喜加一", zero.OnlyGroup, zero.AdminPermission, loadSubs).SetBlock(true).Handle(func(ctx *zero.Ctx) {
		s, err := getSubs()
		if err == nil {
			err = s.add(ctx.Event.GroupID)
		}
		if err != nil {
			ctx.SendChain(message.Text("保存失败: ", err))
			return
		}
		ctx.SendChain(message.Text("订阅成功，每周四晚自动播报"))
	})
	engine.OnFullMatch("退订喜加一", zero.OnlyGroup, zero.AdminPermission, loadSubs).SetBlock(true).Handle(func(ctx *zero.Ctx) {
		s, err := getSubs()
		if err == nil {
			err = s.del(ctx.Event.GroupID)
		}
		if err != nil {
			ctx.SendChain(message.Text("保存失败: ", err))
			return
		}
		ctx.SendChain(message.Text("退订成功"))
	})

	c := cron.New(cron.WithSeconds())
	// EPIC 周免北京时间周四晚刷新
	if _, err := c.AddFunc("0 5 23 * * 4", pushToSubscribers); err != nil {
		panic(err)
	}
	c.Start()
}

func fetchDigest() (string, error) {
	data, err := web.GetData(api)
	if err != nil {
		return "", err
	}
	return buildDigest(data)
}

// buildDigest 过滤出折扣100%的游戏并按当前/即将分组
func buildDigest(data []byte) (string, error) {
	var payload promotionResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}
	games := make([]string, 0, 4)
	upcoming := make([]string, 0, 4)
	for _, g := range payload.Data.Catalog.SearchStore.Elements {
		if g.Promotions == nil {
			continue
		}
		offer, current, ok := pickOffer(g.Promotions.PromotionalOffers, g.Promotions.UpcomingPromotionalOffers)
		if !ok || offer.DiscountSetting.DiscountPercentage != 0 {
			continue
		}
		entry := "【" + g.Title + "】\n" +
			"原价: " + g.Price.TotalPrice.FmtPrice.OriginalPrice +
			" | 现价: " + g.Price.TotalPrice.FmtPrice.DiscountPrice + "\n" +
			"活动时间: " + toUTC8(offer.StartDate) + " - " + toUTC8(offer.EndDate)
		if current {
			games = append(games, entry)
		} else {
			upcoming = append(upcoming, entry)
		}
	}
	if len(games) == 0 && len(upcoming) == 0 {
		return "暂无免费游戏", nil
	}
	return "【EPIC 喜加一】\n" + strings.Join(games, "\n\n") +
		"\n\n【即将免费】\n" + strings.Join(upcoming, "\n\n"), nil
}

func pickOffer(current, upcoming []offerGroup) (offer promoOffer, isCurrent, ok bool) {
	if len(current) > 0 && len(current[0].PromotionalOffers) > 0 {
		return current[0].PromotionalOffers[0], true, true
	}
	if len(upcoming) > 0 && len(upcoming[0].PromotionalOffers) > 0 {
		return upcoming[0].PromotionalOffers[0], false, true
	}
	return promoOffer{}, false, false
}

// toUTC8 上游给UTC时间，转成北京时间展示，解析失败原样返回
func toUTC8(s string) string {
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		return s
	}
	return t.Add(8 * time.Hour).Format("2006-01-02 15:04")
}

func pushToSubscribers() {
	s, err := getSubs()
	if err != nil {
		logrus.Warnln("[epicfree] 读取订阅列表失败:", err)
		return
	}
	digest, err := fetchDigest()
	if err != nil {
		logrus.Warnln("[epicfree] 定时获取周免失败:", err)
		return
	}
	if digest == "暂无免费游戏" {
		return
	}
	gids := s.list()
	if len(gids) == 0 {
		return
	}
	zero.RangeBot(func(_ int64, ctx *zero.Ctx) bool {
		for _, gid := range gids {
			ctx.SendGroupMessage(gid, message.Text(digest))
		}
		return true
	})
}
